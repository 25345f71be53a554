package migrations

import "embed"

// Files 按版本号顺序内嵌所有 SQL 迁移文件，由 internal/storage/mysql 执行。
//
//go:embed *.sql
var Files embed.FS
