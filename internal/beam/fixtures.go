package beam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// ErrFixtureNotFound 夹具文件中没有匹配的记录
var ErrFixtureNotFound = errors.New("fixture record not found")

// Fixtures 读取种子数据生成的夹具文件 <dir>/generated/<name>.json
type Fixtures struct {
	dir string
}

// NewFixtures 创建夹具读取器
func NewFixtures(dir string) *Fixtures {
	return &Fixtures{dir: dir}
}

func (f *Fixtures) load(name string) (gjson.Result, error) {
	path := filepath.Join(f.dir, "generated", name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read fixture %s: %w", name, err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("fixture %s is not valid json", path)
	}
	return gjson.ParseBytes(data), nil
}

// Find 在夹具的 data 列表中查找 field 等于 value 的对象
func (f *Fixtures) Find(name, field, value string) (gjson.Result, error) {
	doc, err := f.load(name)
	if err != nil {
		return gjson.Result{}, err
	}
	rec, ok := lo.Find(doc.Get("data").Array(), func(r gjson.Result) bool {
		return r.IsObject() && r.Get(field).String() == value
	})
	if !ok {
		return gjson.Result{}, fmt.Errorf("%w: %s with %s=%q", ErrFixtureNotFound, name, field, value)
	}
	return rec, nil
}

// User 按邮箱查找种子用户
func (f *Fixtures) User(email string) (gjson.Result, error) {
	return f.Find("users", "email", email)
}

// Studio 按 ID 查找种子工作室
func (f *Fixtures) Studio(id string) (gjson.Result, error) {
	return f.Find("studios", "id", id)
}

// SpecialCase 查找 specialCases 中标记的记录，如 products 的 identified
func (f *Fixtures) SpecialCase(name, kind string) (gjson.Result, error) {
	doc, err := f.load(name)
	if err != nil {
		return gjson.Result{}, err
	}
	id := doc.Get("specialCases." + kind)
	if !id.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s has no special case %q", ErrFixtureNotFound, name, kind)
	}
	return f.Find(name, "id", id.String())
}

// UserAndStudio 当前配置的用户与工作室
type UserAndStudio struct {
	User   gjson.Result
	Studio gjson.Result
}

// LoadUserAndStudio 按配置的邮箱与工作室 ID 读取夹具
func LoadUserAndStudio(c Case) (UserAndStudio, error) {
	cfg := c.Config()
	f := NewFixtures(cfg.FixturesDir)
	user, err := f.User(cfg.User.Email)
	if err != nil {
		return UserAndStudio{}, err
	}
	studio, err := f.Studio(cfg.StudioID)
	if err != nil {
		return UserAndStudio{}, err
	}
	return UserAndStudio{User: user, Studio: studio}, nil
}
