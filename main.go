package main

import "tonebot/cmd"

func main() {
	cmd.Execute()
}
