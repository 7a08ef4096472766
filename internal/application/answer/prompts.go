package answer

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 模板标识
type PromptID string

const PromptAnswerV1 PromptID = "answer_v1"

// Prompts 内嵌模板的缓存注册表
type Prompts struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

// NewPrompts 创建模板注册表
func NewPrompts() *Prompts {
	return &Prompts{cache: make(map[PromptID]einoprompt.ChatTemplate)}
}

// ChatTemplate 读取 system / user 模板并构造 FString ChatTemplate
func (p *Prompts) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	p.mu.RLock()
	tpl, ok := p.cache[id]
	p.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tpl, ok := p.cache[id]; ok {
		return tpl, nil
	}
	system, err := readTemplate(fmt.Sprintf("templates/%s.system.txt", id))
	if err != nil {
		return nil, err
	}
	user, err := readTemplate(fmt.Sprintf("templates/%s.user.txt", id))
	if err != nil {
		return nil, err
	}
	tpl = einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	p.cache[id] = tpl
	return tpl, nil
}

func readTemplate(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unknown prompt template %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}
