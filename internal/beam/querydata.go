package beam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"beame2e/internal/browser"
)

// ErrNoQueryData 应用查询缓存中没有对应数据
var ErrNoQueryData = errors.New("query data is undefined")

// queryDataExpr 构造读取应用查询缓存的表达式，默认非精确匹配
func queryDataExpr(key any, filters map[string]any) (string, error) {
	k, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("encode query key: %w", err)
	}
	if filters == nil {
		filters = map[string]any{}
	}
	f, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("encode query filters: %w", err)
	}
	return fmt.Sprintf("window.__rqClient__.getQueryData(%s, Object.assign({exact: false}, %s))", k, f), nil
}

// GetQueryData 读取应用查询缓存中 key 对应的数据
func GetQueryData(ctx context.Context, ev browser.Evaluator, key any, filters map[string]any) (gjson.Result, error) {
	expr, err := queryDataExpr(key, filters)
	if err != nil {
		return gjson.Result{}, err
	}
	raw, err := ev.Evaluate(ctx, expr)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read query data: %w", err)
	}
	res := gjson.ParseBytes(raw)
	if len(raw) == 0 || res.Type == gjson.Null {
		return gjson.Result{}, fmt.Errorf("%w for key %s", ErrNoQueryData, expr)
	}
	return res, nil
}
