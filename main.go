package main

import "previewchat/cmd"

func main() {
	cmd.Execute()
}
