package tools

import (
	"fmt"
	"strings"

	xerrors "ChainScope-MCP/internal/errors"
)

// lookupDocs 在文档库中检索链上概念说明。
func (d *Dispatcher) lookupDocs(req Request) (*Result, error) {
	if d.docs == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置文档库")
	}
	query := argString(req.Args, "query")
	topic := argString(req.Args, "topic")
	if query == "" && topic == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 query 或 topic 参数")
	}

	snippets := d.docs.Query(query, topic)
	if len(snippets) == 0 {
		return &Result{Output: "未找到匹配的文档"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "找到 %d 条文档:\n", len(snippets))
	for _, snippet := range snippets {
		fmt.Fprintf(&b, "\n## %s\n%s\n", snippet.Title, strings.TrimSpace(snippet.Content))
	}
	return &Result{Output: b.String()}, nil
}
