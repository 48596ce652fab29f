package main

import (
	"log"

	"github.com/gerlope/ugr-matrix-chatroom-manager/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
