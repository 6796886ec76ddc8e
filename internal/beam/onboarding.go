package beam

import (
	"context"

	"beame2e/internal/intercept"
	"beame2e/internal/rules"
	"beame2e/pkg/model"
	"beame2e/pkg/traffic"
)

// FileStatusPrefix 文件状态轮询的动态别名前缀
const FileStatusPrefix = "onboardingFileStatus"

var fileStatusQuery = intercept.EntityQuery{List: "files", Field: "fileId"}

// InterceptFileStatus 按 holder 中的文件 ID 为文件状态轮询设置别名
func InterceptFileStatus(c Case, holder *intercept.IDHolder) rules.RuleID {
	return intercept.InstallDynamicAlias(c.Registry(), get(c, "/api/v1/file/status", model.APIOnboarding), FileStatusPrefix, holder)
}

// WaitAndVerifyFile 等待当前文件的状态响应并确认文件出现在列表中
func WaitAndVerifyFile(ctx context.Context, c Case, holder *intercept.IDHolder) (*traffic.Exchange, error) {
	return intercept.AwaitEntity(ctx, c.Registry(), FileStatusPrefix, holder, fileStatusQuery)
}
