package main

import "github.com/frahmantamala/member-directory/cmd"

func main() {
	cmd.Execute()
}
