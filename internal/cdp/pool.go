package cdp

import "sync"

// workerPool 固定数量的 worker 与有界任务队列
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newWorkerPool(workers int) *workerPool {
	p := &workerPool{jobs: make(chan func(), workers*16)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// submit 投递任务，队列已满时返回 false
func (p *workerPool) submit(job func()) (ok bool) {
	defer func() {
		// 已停止的池写入会 panic
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

func (p *workerPool) stop() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}
