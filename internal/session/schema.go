package session

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
)

const entrySchema = `{
  "type": "object",
  "required": ["body", "expiresAt"],
  "properties": {
    "body": {
      "type": "object",
      "required": ["access_token"],
      "properties": {
        "access_token": {"type": "string"}
      }
    },
    "expiresAt": {"type": "number"}
  }
}`

var entryLoader = gojsonschema.NewStringLoader(entrySchema)

// validateEntry 校验缓存值是否为带访问令牌的条目
func validateEntry(raw string) error {
	res, err := gojsonschema.Validate(entryLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("cache entry is not json: %w", err)
	}
	if !res.Valid() {
		msgs := lo.Map(res.Errors(), func(e gojsonschema.ResultError, _ int) string { return e.String() })
		return fmt.Errorf("cache entry has no usable token: %s", strings.Join(msgs, "; "))
	}
	return nil
}
