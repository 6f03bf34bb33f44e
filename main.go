package main

import "github.com/redhat-developer/podman-desktop-redhat-account-ext/cmd"

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
