package queue

import "fmt"

type keys struct {
	name string
}

func (k keys) pending() string { return fmt.Sprintf("spi:queue:%s:pending", k.name) }
func (k keys) started() string { return fmt.Sprintf("spi:queue:%s:started", k.name) }
func (k keys) failed() string  { return fmt.Sprintf("spi:queue:%s:failed", k.name) }
func (k keys) stop() string    { return fmt.Sprintf("spi:queue:%s:stop", k.name) }

func (k keys) job(id string) string {
	return fmt.Sprintf("spi:queue:%s:job:%s", k.name, id)
}
