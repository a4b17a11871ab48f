// Command wxprofile はWeChatミニプログラム向け利用者情報APIのエントリーポイント。
//
//	wxprofile [serve|worker|migrate|migrate-down|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/wxprofile/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
