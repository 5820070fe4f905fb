package main

import "github.com/flashkv/fKV/cmd"

func main() {
	cmd.Execute()
}
