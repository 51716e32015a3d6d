package rollback

import (
	"context"

	"github.com/shaiso/voxline/internal/domain"
)

// Compensator — компенсирующее действие для одного типа ресурса.
//
// Возврат nil означает успешную компенсацию. Компенсатор обязан
// уважать дедлайн контекста: Manager выделяет каждому ресурсу
// собственный таймаут.
type Compensator interface {
	Compensate(ctx context.Context, res domain.Resource) error
}

// CompensatorFunc адаптирует функцию к интерфейсу Compensator.
type CompensatorFunc func(ctx context.Context, res domain.Resource) error

// Compensate вызывает f.
func (f CompensatorFunc) Compensate(ctx context.Context, res domain.Resource) error {
	return f(ctx, res)
}

// Registry — реестр компенсаторов: тип ресурса → компенсатор.
//
// Реестр заполняется при старте процесса и далее только читается.
type Registry map[domain.ResourceType]Compensator

// Register добавляет компенсатор для типа ресурса.
func (r Registry) Register(t domain.ResourceType, c Compensator) {
	r[t] = c
}

// Lookup возвращает компенсатор для типа, если он зарегистрирован.
func (r Registry) Lookup(t domain.ResourceType) (Compensator, bool) {
	c, ok := r[t]
	return c, ok
}
