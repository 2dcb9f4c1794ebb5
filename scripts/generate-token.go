package main

import (
	"fmt"
	"os"

	"github.com/graphwarden/warden-server-go/internal/util"
)

func main() {
	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token:      %s\n", token)
	fmt.Printf("token_hash: %s\n", util.HashToken(token))
}
