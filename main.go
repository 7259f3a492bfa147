package main

import "erevent/cmd"

func main() {
	cmd.Execute()
}
