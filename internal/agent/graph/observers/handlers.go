package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates the prompt and chat model observers into one callbacks.Handler.
// modelName selects the pricing used for usage cost logging.
func NewAllCallbacks(modelName string) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler(modelName)).
		Prompt(newPromptHandler()).
		Handler()
}
