package main

import "github.com/dnitsch/aws-session-broker/cmd"

func main() {
	cmd.Execute()
}
