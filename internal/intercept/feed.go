package intercept

import "beame2e/pkg/traffic"

// Feed 浏览器适配器上报流量的入口
type Feed interface {
	Begin(req *traffic.Request) Decision
	Pending(id string) bool
	Complete(id string, res *traffic.Response)
	Abort(id, reason string)
}

var _ Feed = (*Registry)(nil)

// Pending 请求是否已命中规则且仍在等待响应
func (r *Registry) Pending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}
