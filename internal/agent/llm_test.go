package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	resp *llms.ContentResponse
	err  error

	gotMessages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.gotMessages = messages
	return m.resp, m.err
}

func (m *fakeModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestLLMInvoker_SendsSystemAndHumanMessages(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "findings: nothing blocking"}},
	}}
	inv := NewLLMInvoker(Researcher, model, "You are a research agent.", time.Minute)

	res, err := inv.Invoke(context.Background(), Task{
		Description:  "investigate the login flow",
		Instructions: "focus on session expiry",
		Workspace:    "/tmp/ws",
	})
	require.NoError(t, err)
	assert.Equal(t, "findings: nothing blocking", res.Content)

	require.Len(t, model.gotMessages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.gotMessages[1].Role)

	human, ok := model.gotMessages[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, human.Text, "investigate the login flow")
	assert.Contains(t, human.Text, "focus on session expiry")
	assert.Contains(t, human.Text, "/tmp/ws")
}

func TestLLMInvoker_NoSystemPromptSendsSingleMessage(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "ok"}},
	}}
	inv := NewLLMInvoker(Coder, model, "", time.Minute)

	_, err := inv.Invoke(context.Background(), Task{Description: "implement"})
	require.NoError(t, err)
	require.Len(t, model.gotMessages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.gotMessages[0].Role)
}

func TestLLMInvoker_ProviderErrorIsTransient(t *testing.T) {
	model := &fakeModel{err: errors.New("upstream 503")}
	inv := NewLLMInvoker(Researcher, model, "system", time.Minute)

	_, err := inv.Invoke(context.Background(), Task{Description: "investigate"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestLLMInvoker_NoChoicesIsPermanent(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{}}
	inv := NewLLMInvoker(Researcher, model, "system", time.Minute)

	_, err := inv.Invoke(context.Background(), Task{Description: "investigate"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	var perm *PermanentError
	assert.ErrorAs(t, err, &perm)
}
