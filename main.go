package main

import "github.com/frahmantamala/finverse-reconciler/cmd"

func main() {
	cmd.Execute()
}
