package main

import "github.com/oshokin/ota-packager/cmd/ota-packager/cmd"

func main() {
	cmd.Execute()
}
