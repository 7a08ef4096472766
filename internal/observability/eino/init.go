package eino

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var initOnce sync.Once

// Init 注册 ChatModel 与 Embedding 的全局回调，重复调用无副作用
func Init() {
	initOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(newHandler())
	})
}

func newHandler() einocallbacks.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Embedding(newEmbeddingCallbackHandler()).
		Handler()
}
