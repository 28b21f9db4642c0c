package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

const openAPIBase = "https://open.feishu.cn/open-apis"

// Attachment is a non-text part of a received message
type Attachment struct {
	Kind string // image, file
	Key  string
}

// Message represents a received Feishu message
type Message struct {
	ChatID      string
	MsgID       string
	MsgType     string // text, image, post, file
	ChatType    string // p2p, group
	Content     string // text content with mention placeholders replaced
	Attachments []Attachment
	SenderID    string
	Mentions    []string // mentioned open_ids, including the bot
	MentionsBot bool
	CreateTime  time.Time
}

// Mention represents a user to be mentioned in a message
type Mention struct {
	UserID   string
	UserName string
}

// ChatMember represents a member in a chat
type ChatMember struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID   string   `json:"chat_id"`
	Name     string   `json:"name"`
	ChatMode string   `json:"chat_mode"` // p2p, group, topic
	OwnerID  string   `json:"owner_id"`
	Managers []string `json:"managers"`
	Avatar   string   `json:"avatar"`
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	logger    *zap.Logger
	onMessage MessageHandler

	mu        sync.RWMutex
	botOpenID string
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *zap.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    logger.Named("feishu"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// BotOpenID returns the bot's own open_id, empty until Start has fetched it
func (c *Client) BotOpenID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botOpenID
}

// Start connects via WebSocket and blocks until ctx is cancelled or the connection fails
func (c *Client) Start(ctx context.Context) error {
	if c.BotOpenID() == "" {
		if _, err := c.Identify(ctx); err != nil {
			c.logger.Warn("Failed to fetch bot open_id", zap.Error(err))
		}
	}

	// Handlers must return quickly so the SDK can ACK; otherwise Feishu redelivers.
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	wsCli := larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("Starting websocket connection")
	return wsCli.Start(ctx)
}

// UseIdentity sets the bot's open_id without asking the API
func (c *Client) UseIdentity(openID string) {
	c.mu.Lock()
	c.botOpenID = openID
	c.mu.Unlock()
}

// Identify asks the bot info endpoint for the bot's own open_id
func (c *Client) Identify(ctx context.Context) (string, error) {
	body := fmt.Sprintf(`{"app_id":%q,"app_secret":%q}`, c.appID, c.appSecret)
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		openAPIBase+"/auth/v3/tenant_access_token/internal", strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	tokenReq.Header.Set("Content-Type", "application/json")

	tokenResp, err := http.DefaultClient.Do(tokenReq)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	defer tokenResp.Body.Close()

	var tokenResult struct {
		Code              int    `json:"code"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenResult); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAPIBase+"/bot/v3/info", nil)
	if err != nil {
		return "", fmt.Errorf("build bot info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokenResult.TenantAccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get bot info: %w", err)
	}
	defer resp.Body.Close()

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&botResult); err != nil {
		return "", fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return "", fmt.Errorf("bot info API error: %s", botResult.Msg)
	}

	c.UseIdentity(botResult.Bot.OpenID)
	c.logger.Info("Bot identity", zap.String("open_id", botResult.Bot.OpenID), zap.String("name", botResult.Bot.AppName))
	return botResult.Bot.OpenID, nil
}

// handleMessage converts a receive event and passes it to the handler
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	msg := c.convert(event)
	if msg == nil || c.onMessage == nil {
		return
	}
	c.onMessage(msg)
}

func (c *Client) convert(event *larkim.P2MessageReceiveV1) *Message {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	raw := event.Event.Message

	// Skip our own messages to avoid loops
	sender := event.Event.Sender
	if sender != nil && sender.SenderType != nil && *sender.SenderType == "app" {
		return nil
	}

	msg := &Message{
		ChatID:   deref(raw.ChatId),
		MsgID:    deref(raw.MessageId),
		MsgType:  deref(raw.MessageType),
		ChatType: deref(raw.ChatType),
	}
	if ts, err := strconv.ParseInt(deref(raw.CreateTime), 10, 64); err == nil {
		msg.CreateTime = time.UnixMilli(ts)
	} else {
		msg.CreateTime = time.Now()
	}
	if sender != nil && sender.SenderId != nil {
		msg.SenderID = deref(sender.SenderId.OpenId)
	}

	botID := c.BotOpenID()
	mentionMap := make(map[string]string)
	for _, m := range raw.Mentions {
		if m.Id != nil && m.Id.OpenId != nil {
			msg.Mentions = append(msg.Mentions, *m.Id.OpenId)
			if botID != "" && *m.Id.OpenId == botID {
				msg.MentionsBot = true
			}
		}
		if m.Key != nil && m.Name != nil {
			mentionMap[*m.Key] = *m.Name
		}
	}

	content := deref(raw.Content)
	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(content, mentionMap)
	case "image":
		if key := parseKey(content, "image_key"); key != "" {
			msg.Attachments = append(msg.Attachments, Attachment{Kind: "image", Key: key})
		}
	case "file":
		if key := parseKey(content, "file_key"); key != "" {
			msg.Attachments = append(msg.Attachments, Attachment{Kind: "file", Key: key})
		}
	case "post":
		msg.Content, msg.Attachments = parsePostContent(content, mentionMap)
	default:
		c.logger.Debug("Unsupported message type", zap.String("type", msg.MsgType))
		return nil
	}

	c.logger.Debug("Received message",
		zap.String("chat_id", msg.ChatID),
		zap.String("type", msg.MsgType),
		zap.String("chat_type", msg.ChatType),
		zap.Int("attachments", len(msg.Attachments)))
	return msg
}

// parseTextContent extracts text and replaces mention placeholders (@_user_1) with names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

func parseKey(content, field string) string {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	key, _ := parsed[field].(string)
	return key
}

// parsePostContent extracts text and images from a rich text message
func parsePostContent(content string, mentionMap map[string]string) (string, []Attachment) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			UserID   string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil
	}

	var lines []string
	var attachments []Attachment
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var b strings.Builder
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				b.WriteString(elem.Text)
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					b.WriteString("@" + name)
				} else if elem.UserID != "" {
					b.WriteString("@" + elem.UserID)
				}
			case "img":
				if elem.ImageKey != "" {
					attachments = append(attachments, Attachment{Kind: "image", Key: elem.ImageKey})
				}
			}
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	return replaceMentions(strings.Join(lines, "\n"), mentionMap), attachments
}

func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// SendText sends a text message and returns its message id
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	return c.sendText(ctx, chatID, text)
}

// SendTextWithMentions sends a text message prefixed with <at> tags
func (c *Client) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []Mention) (string, error) {
	return c.sendText(ctx, chatID, FormatMentions(text, mentions))
}

// FormatMentions prefixes text with one <at user_id="..."> tag per mention
func FormatMentions(text string, mentions []Mention) string {
	if len(mentions) == 0 {
		return text
	}
	var b strings.Builder
	for _, m := range mentions {
		fmt.Fprintf(&b, "<at user_id=%q>%s</at> ", m.UserID, m.UserName)
	}
	b.WriteString(text)
	return b.String()
}

func (c *Client) sendText(ctx context.Context, chatID, text string) (string, error) {
	contentJSON, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send message error: %s", resp.Msg)
	}

	var msgID string
	if resp.Data != nil {
		msgID = deref(resp.Data.MessageId)
	}
	c.logger.Debug("Message sent", zap.String("chat_id", chatID), zap.String("message_id", msgID))
	return msgID, nil
}

// AddReaction adds an emoji reaction to a message
func (c *Client) AddReaction(ctx context.Context, messageID, emojiType string) error {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(messageID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType(emojiType).Build()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("add reaction failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("add reaction error: %s", resp.Msg)
	}
	return nil
}

// GetChatMembers retrieves every member of a chat, following pagination
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]*ChatMember, error) {
	var members []*ChatMember
	var pageToken string

	for {
		builder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			members = append(members, &ChatMember{
				MemberID: deref(item.MemberId),
				Name:     deref(item.Name),
			})
		}

		if resp.Data.HasMore == nil || !*resp.Data.HasMore || deref(resp.Data.PageToken) == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}
	return members, nil
}

// GetChatInfo retrieves information about a chat
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat info error: %s", resp.Msg)
	}

	return &ChatInfo{
		ChatID:   chatID,
		Name:     deref(resp.Data.Name),
		ChatMode: deref(resp.Data.ChatMode),
		OwnerID:  deref(resp.Data.OwnerId),
		Managers: resp.Data.UserManagerIdList,
		Avatar:   deref(resp.Data.Avatar),
	}, nil
}

// GetUserName looks up a user's display name through the contact API
func (c *Client) GetUserName(ctx context.Context, openID string) (string, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Contact.User.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("get user failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("get user error: %s", resp.Msg)
	}
	if resp.Data == nil || resp.Data.User == nil {
		return "", nil
	}
	return deref(resp.Data.User.Name), nil
}

// AddChatMembers invites users into a chat
func (c *Client) AddChatMembers(ctx context.Context, chatID string, openIDs ...string) error {
	req := larkim.NewCreateChatMembersReqBuilder().
		ChatId(chatID).
		MemberIdType("open_id").
		Body(larkim.NewCreateChatMembersReqBodyBuilder().IdList(openIDs).Build()).
		Build()

	resp, err := c.larkCli.Im.ChatMembers.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("add chat members failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("add chat members error: %s", resp.Msg)
	}
	return nil
}

// RemoveChatMembers removes users from a chat
func (c *Client) RemoveChatMembers(ctx context.Context, chatID string, openIDs ...string) error {
	req := larkim.NewDeleteChatMembersReqBuilder().
		ChatId(chatID).
		MemberIdType("open_id").
		Body(larkim.NewDeleteChatMembersReqBodyBuilder().IdList(openIDs).Build()).
		Build()

	resp, err := c.larkCli.Im.ChatMembers.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("remove chat members failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("remove chat members error: %s", resp.Msg)
	}
	return nil
}

// UpdateChatName renames a chat
func (c *Client) UpdateChatName(ctx context.Context, chatID, name string) error {
	req := larkim.NewUpdateChatReqBuilder().
		ChatId(chatID).
		Body(larkim.NewUpdateChatReqBodyBuilder().Name(name).Build()).
		Build()

	resp, err := c.larkCli.Im.Chat.Update(ctx, req)
	if err != nil {
		return fmt.Errorf("update chat failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("update chat error: %s", resp.Msg)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
