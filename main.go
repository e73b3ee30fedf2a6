package main

import "github.com/josephlewis42/tacsh/cmd"

func main() {
	cmd.Execute()
}
