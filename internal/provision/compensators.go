package provision

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/cache"
	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/rollback"
	"github.com/shaiso/voxline/internal/services"
)

// NewCompensators собирает реестр компенсаторов под зависимости
// исполнителей этапов. Для nil-зависимостей компенсатор не
// регистрируется: менеджер отката пропустит такой ресурс с warning'ом.
func NewCompensators(directory services.AgentDirectory, phones services.PhoneProvider, agents AgentStore, contentCache cache.ContentCache) rollback.Registry {
	reg := make(rollback.Registry)

	if directory != nil {
		reg.Register(domain.ResourceVoiceAgent, rollback.CompensatorFunc(func(ctx context.Context, res domain.Resource) error {
			return directory.DeleteAgent(ctx, res.ID)
		}))
		reg.Register(domain.ResourceWebhook, rollback.CompensatorFunc(func(ctx context.Context, res domain.Resource) error {
			return directory.DeleteWebhook(ctx, res.ID)
		}))
	}

	if phones != nil {
		reg.Register(domain.ResourcePhoneNumber, rollback.CompensatorFunc(func(ctx context.Context, res domain.Resource) error {
			return phones.Release(ctx, res.ID)
		}))
	}

	if agents != nil {
		reg.Register(domain.ResourceAgentRecord, rollback.CompensatorFunc(func(ctx context.Context, res domain.Resource) error {
			id, err := uuid.Parse(res.ID)
			if err != nil {
				return fmt.Errorf("agent record id %q: %w", res.ID, err)
			}
			return agents.Delete(ctx, id)
		}))
	}

	if contentCache != nil {
		// База знаний живёт внутри агента у провайдера; компенсация —
		// сброс закэшированного контента, из которого она собрана.
		reg.Register(domain.ResourceKnowledgeBase, rollback.CompensatorFunc(func(ctx context.Context, res domain.Resource) error {
			siteURL, _ := res.Data["website_url"].(string)
			if siteURL == "" {
				return nil
			}
			return contentCache.Delete(ctx, siteURL)
		}))
	}

	return reg
}
