package bridge

import (
	"context"
	"fmt"
	"log"

	"github.com/feishu-bots/larkbot/internal/dedup"
	"github.com/feishu-bots/larkbot/internal/deliveries"
	"github.com/feishu-bots/larkbot/internal/feishu"
	"github.com/feishu-bots/larkbot/internal/llm"
)

// seedHistory is the fixed two-turn exchange prepended to every generation
// request. It nudges the model to answer in the language the user writes in.
var seedHistory = []llm.Message{
	{Role: llm.RoleUser, Content: "你好, Gemini. 请使用我使用的语言来回答问题"},
	{Role: llm.RoleAssistant, Content: "好的，很高兴认识你"},
}

// Processor runs the reply pipeline for one inbound message: generate a
// reply, fetch a tenant token, claim the processed record, post the reply.
// The claim sits between generation and delivery on purpose: a reply-API
// failure loses one answer, but a duplicate delivery can never produce a
// second one.
type Processor struct {
	provider  llm.Provider
	model     string
	maxTokens int
	feishu    *feishu.Client
	store     *dedup.Store
	log       *deliveries.Store
}

// NewProcessor creates a Processor. The deliveries store may be nil, in
// which case no delivery log is kept.
func NewProcessor(provider llm.Provider, model string, maxTokens int, client *feishu.Client, store *dedup.Store, logStore *deliveries.Store) *Processor {
	return &Processor{
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
		feishu:    client,
		store:     store,
		log:       logStore,
	}
}

// Process handles one inbound message event and returns the recorded
// outcome. Duplicates are absorbed silently: the outcome is
// OutcomeDuplicate and the error is nil. Any pipeline failure aborts the
// remaining steps and is returned with OutcomeFailed.
func (p *Processor) Process(ctx context.Context, messageID, text string) (deliveries.Outcome, error) {
	seen, err := p.store.HasProcessed(ctx, messageID)
	if err != nil {
		return p.fail(ctx, messageID, fmt.Errorf("dedup check: %w", err))
	}
	if seen {
		p.record(ctx, messageID, deliveries.OutcomeDuplicate, "")
		return deliveries.OutcomeDuplicate, nil
	}

	reply, err := p.generate(ctx, text)
	if err != nil {
		return p.fail(ctx, messageID, fmt.Errorf("generating reply: %w", err))
	}

	token, err := p.feishu.TenantAccessToken(ctx)
	if err != nil {
		return p.fail(ctx, messageID, fmt.Errorf("fetching tenant token: %w", err))
	}

	claimed, err := p.store.Claim(ctx, messageID)
	if err != nil {
		return p.fail(ctx, messageID, fmt.Errorf("claiming message: %w", err))
	}
	if !claimed {
		// A concurrent delivery won the claim; it owns the reply.
		p.record(ctx, messageID, deliveries.OutcomeDuplicate, "lost claim race")
		return deliveries.OutcomeDuplicate, nil
	}

	if err := p.feishu.Reply(ctx, messageID, reply, token); err != nil {
		// The claim is deliberately not rolled back.
		return p.fail(ctx, messageID, fmt.Errorf("posting reply: %w", err))
	}

	p.record(ctx, messageID, deliveries.OutcomeProcessed, "")
	return deliveries.OutcomeProcessed, nil
}

// generate submits the user text with the seed history and returns the
// generated reply text.
func (p *Processor) generate(ctx context.Context, text string) (string, error) {
	messages := make([]llm.Message, 0, len(seedHistory)+1)
	messages = append(messages, seedHistory...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("empty completion from %s", p.provider.Name())
	}
	return resp.Content, nil
}

func (p *Processor) fail(ctx context.Context, messageID string, err error) (deliveries.Outcome, error) {
	p.record(ctx, messageID, deliveries.OutcomeFailed, err.Error())
	return deliveries.OutcomeFailed, err
}

// record appends a delivery log entry. Logging failures must never fail
// the webhook request.
func (p *Processor) record(ctx context.Context, messageID string, outcome deliveries.Outcome, detail string) {
	if p.log == nil {
		return
	}
	err := p.log.Log(ctx, deliveries.Entry{
		MessageID: messageID,
		Outcome:   outcome,
		Detail:    detail,
	})
	if err != nil {
		log.Printf("delivery log write failed: %v", err)
	}
}
