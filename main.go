/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "solana-cosign/cmd"

func main() {
	cmd.Execute()
}
