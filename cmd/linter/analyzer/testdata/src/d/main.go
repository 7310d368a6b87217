package main

import (
	"log"
	"os"
)

func helperFunction() {
	log.Fatal("helper error") // want "log.Fatal should only be used in main.main function"
}

func shutdown() {
	os.Exit(1) // want "os.Exit should only be used in main.main function"
}

func main() {
	if true {
		log.Fatal("main error")
	}
}
