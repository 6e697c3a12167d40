package main

import "github.com/oshokin/cf-guard/cmd/cf-guard/cmd"

func main() {
	cmd.Execute()
}
