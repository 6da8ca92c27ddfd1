package main

import "github.com/hearthview/auth/cmd/hvctl/cmd"

func main() {
	cmd.Execute()
}
