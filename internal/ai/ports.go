package ai

import (
	"context"
	"errors"
)

// Generator drafts the next sales reply; it knows nothing about Instagram or
// storage.
type Generator interface {
	Generate(ctx context.Context, tenant Tenant, history []Message) (Reply, error)
}

// Message is one turn of the transcript.
type Message struct {
	Role string // "user" | "assistant" | "system"
	Text string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type PricingItem struct {
	Name  string
	Price float64
}

// Tenant is the business context the reply is written for.
type Tenant struct {
	Username       string
	Product        string
	Offer          string
	Pricing        []PricingItem
	CallInfo       string
	SchedulingLink string
}

type ToolName string

const (
	ToolAbandon ToolName = "abandon_conversation"
	ToolConvert ToolName = "convert_conversation"
)

type ToolCall struct {
	Name   ToolName
	Reason string
}

// Reply holds either Text or Tool.
type Reply struct {
	Text string
	Tool *ToolCall
}

var ErrEmptyReply = errors.New("generator returned neither text nor tool call")
