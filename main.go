package main

import "github.com/connectify/apiserver/cmd"

func main() {
	cmd.Execute()
}
