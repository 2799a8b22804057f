package main

import "github.com/AppLock-Forge/applockforge/cmd/applock-forge/cmd"

func main() {
	cmd.Execute()
}
