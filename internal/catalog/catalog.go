package catalog

import (
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Catalog — неизменяемый упорядоченный набор шагов pipeline.
//
// Порядок шагов — порядок выполнения. После создания каталог не меняется:
// все методы возвращают копии.
type Catalog struct {
	steps       []domain.StepDescriptor
	index       map[string]int
	projections Projections
}

// New валидирует шаги и создаёт каталог.
// projections может быть nil — тогда для всех шагов используется LinearProjection.
func New(steps []domain.StepDescriptor, projections Projections) (*Catalog, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}

	c := &Catalog{
		steps:       make([]domain.StepDescriptor, len(steps)),
		index:       make(map[string]int, len(steps)),
		projections: make(Projections, len(projections)),
	}
	for i, s := range steps {
		c.steps[i] = s.Clone()
		c.index[s.ID] = i
	}
	for id, p := range projections {
		if _, ok := c.index[id]; !ok {
			return nil, fmt.Errorf("%w: projection for %s", ErrStepNotFound, id)
		}
		c.projections[id] = p
	}

	return c, nil
}

// Len возвращает количество шагов.
func (c *Catalog) Len() int {
	return len(c.steps)
}

// Steps возвращает копию всех дескрипторов в порядке выполнения.
func (c *Catalog) Steps() []domain.StepDescriptor {
	out := make([]domain.StepDescriptor, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.Clone()
	}
	return out
}

// Step возвращает дескриптор по индексу.
func (c *Catalog) Step(i int) (domain.StepDescriptor, bool) {
	if i < 0 || i >= len(c.steps) {
		return domain.StepDescriptor{}, false
	}
	return c.steps[i].Clone(), true
}

// Lookup возвращает дескриптор по ID.
func (c *Catalog) Lookup(id string) (domain.StepDescriptor, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.StepDescriptor{}, false
	}
	return c.steps[i].Clone(), true
}

// IDs возвращает ID шагов в порядке выполнения.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.steps))
	for i, s := range c.steps {
		ids[i] = s.ID
	}
	return ids
}

// Project вычисляет detail-метрики шага для заданного прогресса.
// Для неизвестного шага возвращает пустую map.
func (c *Catalog) Project(stepID string, progress float64) map[string]int {
	i, ok := c.index[stepID]
	if !ok {
		return map[string]int{}
	}
	if p, ok := c.projections[stepID]; ok {
		return p(progress, c.steps[i].Details)
	}
	return LinearProjection(progress, c.steps[i].Details)
}

// NominalDuration возвращает суммарную номинальную длительность всех шагов.
func (c *Catalog) NominalDuration() time.Duration {
	var total time.Duration
	for _, s := range c.steps {
		total += s.NominalDuration
	}
	return total
}
