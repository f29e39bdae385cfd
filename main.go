package main

import (
	"log"

	"chaintix/cmd"

	_ "chaintix/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
