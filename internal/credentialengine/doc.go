// credentialengine
//
// Derives short-lived AWS credentials for heterogeneous account topologies.
//
// A plain (long-lived key, optionally MFA-gated) identity is exchanged for a
// session token, a truster role is reached by assuming into it from a plain,
// federated or SSO parent session, and SSO roles come from the Identity
// Center portal. Session tokens are cached in the OS secret store against
// their expiration; the winning credential set is materialised into the
// shared AWS credentials file under the session's profile name.
package credentialengine
