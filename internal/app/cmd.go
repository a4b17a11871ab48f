package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はプロフィールAPIサーバーとして起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを掃除するワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はアカウント・セッション・プロフィールのスキーマを最新化することを示す。
	CommandMigrate Command = "migrate"
	// CommandMigrateDown は直近のマイグレーションを1つロールバックすることを示す。
	CommandMigrateDown Command = "migrate-down"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示することを示す。
	CommandHelp Command = "help"
)

// commandSummaries はusage表示の順序と説明。
var commandSummaries = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "WeChatログインとプロフィールAPIを提供する (default)"},
	{CommandWorker, "アイドル状態が続いたセッションを定期的に削除する"},
	{CommandMigrate, "accounts/sessions/profilesのマイグレーションを全て適用する"},
	{CommandMigrateDown, "直近のマイグレーションを1つロールバックする"},
	{CommandHealthcheck, "稼働中のサーバーの/healthを確認する"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "migrate-down":
		return CommandMigrateDown
	case "healthcheck":
		return CommandHealthcheck
	case "help", "-h", "--help":
		return CommandHelp
	default:
		return CommandServe
	}
}

// WriteUsage はサブコマンドの一覧をwに書き出す。
func WriteUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: wxprofile [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, s := range commandSummaries {
		fmt.Fprintf(w, "  %-13s %s\n", s.cmd, s.desc)
	}
}
