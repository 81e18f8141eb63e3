package cmd

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

func readPassword(prompt string) string {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("读取密码失败:", err)
		os.Exit(1)
	}
	return string(b)
}

func fail(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}
