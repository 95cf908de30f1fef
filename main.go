package main

import "github.com/hikari-danmu/server/cmd"

func main() {
	cmd.Execute()
}
