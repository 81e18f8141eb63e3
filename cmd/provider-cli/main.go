package main

import "wallet-provider/cmd/provider-cli/cmd"

func main() {
	cmd.Execute()
}
