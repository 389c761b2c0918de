package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/goliatone/go-rfp/core"
	"github.com/goliatone/go-rfp/wire"
)

type harness struct {
	store     *core.MemoryStore
	publisher *stubPublisher
	creator   *Creator
	sender    *Sender
	decliner  *AutoDecliner
}

func newHarness(companyID string) *harness {
	store := core.NewMemoryStore()
	stub := newStubPublisher()
	counter := 0
	creator := NewCreator(store, companyID, WithCreatorIDGenerator(func() string {
		counter++
		return fmt.Sprintf("%s-act-%d", companyID, counter)
	}))
	retrying := &RetryingPublisher{Publisher: stub, MaxAttempts: 2, Sleep: noSleep}
	sender := NewSender(store, retrying, companyID)
	return &harness{
		store:     store,
		publisher: stub,
		creator:   creator,
		sender:    sender,
		decliner:  NewAutoDecliner(store, creator, sender, nil),
	}
}

func rfpInput(participants ...string) CreateRequestsInput {
	return CreateRequestsInput{
		RFP: core.RequestForProposal{
			StaticID:       "rfp-1",
			Context:        json.RawMessage(`{"productId":"LOAN","subProductId":"BILATERAL"}`),
			ProductRequest: json.RawMessage(`{"amount":10}`),
		},
		ParticipantIDs: participants,
	}
}

func (h *harness) receive(t *testing.T, id string, actionType core.ActionType, sender string) {
	t.Helper()
	_, err := h.store.CreateAction(context.Background(), core.Action{
		StaticID:          id,
		RFPID:             "rfp-1",
		Type:              actionType,
		SenderStaticID:    sender,
		RecipientStaticID: "requester",
		Status:            core.ActionStatusProcessed,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (h *harness) requestAll(t *testing.T, participants ...string) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := h.creator.CreateRequests(ctx, rfpInput(participants...)); err != nil {
		t.Fatalf("create requests: %v", err)
	}
	if _, err := h.sender.SendAll(ctx, "rfp-1", core.ActionTypeRequest); err != nil {
		t.Fatalf("send requests: %v", err)
	}
}

func statusesByRecipient(results []core.SendResult) map[string]core.ActionStatus {
	out := map[string]core.ActionStatus{}
	for _, result := range results {
		out[result.RecipientStaticID] = result.Status
	}
	return out
}

func TestCreateRequests_CreatesOnePendingActionPerParticipant(t *testing.T) {
	h := newHarness("requester")
	rfp, actions, err := h.creator.CreateRequests(context.Background(), rfpInput("bank2", "bank1", "bank1", "requester", " "))
	if err != nil {
		t.Fatalf("create requests: %v", err)
	}
	if rfp.StaticID != "rfp-1" {
		t.Fatalf("unexpected rfp id %q", rfp.StaticID)
	}
	if len(actions) != 2 || actions[0].RecipientStaticID != "bank1" || actions[1].RecipientStaticID != "bank2" {
		t.Fatalf("expected deduplicated participants, got %+v", actions)
	}
	for _, action := range actions {
		if action.Status != core.ActionStatusCreated || action.SenderStaticID != "requester" {
			t.Fatalf("unexpected action %+v", action)
		}
	}

	_, again, err := h.creator.CreateRequests(context.Background(), rfpInput("bank1", "bank2"))
	if err != nil {
		t.Fatalf("retry create requests: %v", err)
	}
	if again[0].StaticID != actions[0].StaticID {
		t.Fatalf("expected retry to reuse pending action")
	}
}

func TestCreateRequests_RequiresParticipants(t *testing.T) {
	h := newHarness("requester")
	if _, _, err := h.creator.CreateRequests(context.Background(), rfpInput("requester")); err == nil {
		t.Fatalf("expected participant error")
	}
}

func TestSendAll_PartialFailureReportsEveryResult(t *testing.T) {
	h := newHarness("requester")
	if _, _, err := h.creator.CreateRequests(context.Background(), rfpInput("bank1", "bank2", "bank3")); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.publisher.failKey("bank2", -1)
	results, err := h.sender.SendAll(context.Background(), "rfp-1", core.ActionTypeRequest)
	if err != nil {
		t.Fatalf("expected partial success not to raise: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	statuses := statusesByRecipient(results)
	if statuses["bank1"] != core.ActionStatusProcessed || statuses["bank3"] != core.ActionStatusProcessed || statuses["bank2"] != core.ActionStatusFailed {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
	failed, _ := h.store.FindActions(context.Background(), core.ActionQuery{RFPID: "rfp-1", RecipientStaticID: "bank2"})
	if len(failed) != 1 || failed[0].Status != core.ActionStatusFailed || failed[0].SentAt == nil {
		t.Fatalf("expected failed record with sentAt, got %+v", failed)
	}
}

func TestSendAll_RaisesWhenEveryDeliveryFails(t *testing.T) {
	h := newHarness("requester")
	if _, _, err := h.creator.CreateRequests(context.Background(), rfpInput("bank1", "bank2", "bank3")); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, bank := range []string{"bank1", "bank2", "bank3"} {
		h.publisher.failKey(bank, -1)
	}
	results, err := h.sender.SendAll(context.Background(), "rfp-1", core.ActionTypeRequest)
	if err == nil {
		t.Fatalf("expected error when all deliveries fail")
	}
	if len(results) != 3 {
		t.Fatalf("expected results to be returned alongside the error, got %d", len(results))
	}
	if core.TextCode(err) != core.ErrorDeliveryFailed {
		t.Fatalf("expected delivery failed code, got %s", core.TextCode(err))
	}
}

func TestSend_EncodesWireEnvelope(t *testing.T) {
	h := newHarness("requester")
	h.requestAll(t, "bank1")
	messages := h.publisher.messagesFor("bank1")
	if len(messages) != 1 {
		t.Fatalf("expected one message for bank1, got %d", len(messages))
	}
	msg, err := wire.Decode(wire.DefaultFormat(), messages[0].Body)
	if err != nil {
		t.Fatalf("decode published body: %v", err)
	}
	if msg.Type != core.ActionTypeRequest || msg.Header.SenderStaticID != "requester" || msg.Header.SentAt.IsZero() {
		t.Fatalf("unexpected wire message %+v", msg)
	}
}

func TestCreateAccept_ValidatesAndSendLatestReusesRecord(t *testing.T) {
	h := newHarness("requester")
	ctx := context.Background()
	h.requestAll(t, "bank1", "bank2")
	if _, err := h.creator.CreateAccept(ctx, "rfp-1", "bank1", nil); err == nil {
		t.Fatalf("expected accept without response to fail")
	}
	h.receive(t, "resp-1", core.ActionTypeResponse, "bank1")

	h.publisher.failKey("bank1", -1)
	accept, err := h.creator.CreateAccept(ctx, "rfp-1", "bank1", json.RawMessage(`{"note":"ok"}`))
	if err != nil {
		t.Fatalf("create accept: %v", err)
	}
	again, err := h.creator.CreateAccept(ctx, "rfp-1", "bank1", nil)
	if err != nil {
		t.Fatalf("retry create accept: %v", err)
	}
	if again.StaticID != accept.StaticID {
		t.Fatalf("expected pending accept to be reused")
	}
	h.publisher.failKey("bank1", 0)
	result, err := h.sender.SendLatest(ctx, "rfp-1", core.ActionTypeAccept, "bank1")
	if err != nil {
		t.Fatalf("send latest: %v", err)
	}
	if result.ActionID != accept.StaticID || !result.Succeeded() {
		t.Fatalf("unexpected accept result %+v", result)
	}
	if _, err := h.creator.CreateAccept(ctx, "rfp-1", "bank1", nil); err == nil {
		t.Fatalf("expected second accept to be rejected")
	}
}

func TestSendLatest_RaisesWhenSingleDeliveryFails(t *testing.T) {
	h := newHarness("bank1")
	ctx := context.Background()
	if _, err := h.store.CreateRFP(ctx, rfpInput().RFP); err != nil {
		t.Fatalf("create rfp: %v", err)
	}
	if _, err := h.store.CreateAction(ctx, core.Action{
		StaticID: "req-1", RFPID: "rfp-1", Type: core.ActionTypeRequest,
		SenderStaticID: "requester", RecipientStaticID: "bank1", Status: core.ActionStatusProcessed,
	}); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	reply, err := h.creator.CreateReply(ctx, "rfp-1", core.ActionTypeResponse, json.RawMessage(`{"rate":1.5}`))
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	if reply.RecipientStaticID != "requester" {
		t.Fatalf("expected reply addressed to requester, got %q", reply.RecipientStaticID)
	}
	h.publisher.failKey("requester", -1)
	result, err := h.sender.SendLatest(ctx, "rfp-1", core.ActionTypeResponse, "")
	if err == nil {
		t.Fatalf("expected single reply failure to raise")
	}
	if result.Status != core.ActionStatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
}

func TestCreateReply_BlockedAfterOwnReject(t *testing.T) {
	h := newHarness("bank2")
	ctx := context.Background()
	if _, err := h.store.CreateRFP(ctx, rfpInput().RFP); err != nil {
		t.Fatalf("create rfp: %v", err)
	}
	if _, err := h.store.CreateAction(ctx, core.Action{
		StaticID: "req-2", RFPID: "rfp-1", Type: core.ActionTypeRequest,
		SenderStaticID: "requester", RecipientStaticID: "bank2", Status: core.ActionStatusProcessed,
	}); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	if _, err := h.creator.CreateReply(ctx, "rfp-1", core.ActionTypeReject, nil); err != nil {
		t.Fatalf("create reject: %v", err)
	}
	if _, err := h.sender.SendLatest(ctx, "rfp-1", core.ActionTypeReject, ""); err != nil {
		t.Fatalf("send reject: %v", err)
	}
	_, err := h.creator.CreateReply(ctx, "rfp-1", core.ActionTypeResponse, json.RawMessage(`{}`))
	if err == nil || core.TextCode(err) != core.ErrorTransitionConflict {
		t.Fatalf("expected transition conflict after reject, got %v", err)
	}
}

func TestAutoDecline_DeclinesExactlyRemainingParticipants(t *testing.T) {
	h := newHarness("requester")
	ctx := context.Background()
	h.requestAll(t, "A", "B", "C", "D", "E")
	h.receive(t, "rej-b", core.ActionTypeReject, "B")
	h.receive(t, "resp-c", core.ActionTypeResponse, "C")
	if _, err := h.creator.CreateAccept(ctx, "rfp-1", "C", nil); err != nil {
		t.Fatalf("create accept: %v", err)
	}
	if _, err := h.sender.SendLatest(ctx, "rfp-1", core.ActionTypeAccept, "C"); err != nil {
		t.Fatalf("send accept: %v", err)
	}

	results, err := h.decliner.DeclineRemaining(ctx, "rfp-1")
	if err != nil {
		t.Fatalf("decline remaining: %v", err)
	}
	statuses := statusesByRecipient(results)
	if len(statuses) != 3 {
		t.Fatalf("expected declines to exactly three participants, got %+v", statuses)
	}
	for _, participant := range []string{"A", "D", "E"} {
		if statuses[participant] != core.ActionStatusProcessed {
			t.Fatalf("expected processed decline to %s, got %+v", participant, statuses)
		}
	}
	for _, participant := range []string{"B", "C"} {
		declines, _ := h.store.FindActions(ctx, core.ActionQuery{
			RFPID: "rfp-1", Types: []core.ActionType{core.ActionTypeDecline}, RecipientStaticID: participant,
		})
		if len(declines) != 0 {
			t.Fatalf("expected no decline to %s", participant)
		}
	}

	second, err := h.decliner.DeclineRemaining(ctx, "rfp-1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected idempotent second run, got %+v", second)
	}
	declines, _ := h.store.FindActions(ctx, core.ActionQuery{RFPID: "rfp-1", Types: []core.ActionType{core.ActionTypeDecline}})
	if len(declines) != 3 {
		t.Fatalf("expected exactly three decline records, got %d", len(declines))
	}
}

func TestAutoDecline_RetriesPendingDeclinesOnNextRun(t *testing.T) {
	h := newHarness("requester")
	ctx := context.Background()
	h.requestAll(t, "A", "B")
	h.receive(t, "resp-a", core.ActionTypeResponse, "A")
	if _, err := h.creator.CreateAccept(ctx, "rfp-1", "A", nil); err != nil {
		t.Fatalf("create accept: %v", err)
	}
	if _, err := h.sender.SendLatest(ctx, "rfp-1", core.ActionTypeAccept, "A"); err != nil {
		t.Fatalf("send accept: %v", err)
	}
	h.publisher.failKey("B", -1)
	results, err := h.decliner.DeclineRemaining(ctx, "rfp-1")
	if err != nil {
		t.Fatalf("decline remaining: %v", err)
	}
	if len(results) != 1 || results[0].Status != core.ActionStatusFailed {
		t.Fatalf("expected failed decline to B, got %+v", results)
	}

	h.publisher.failKey("B", 0)
	results, err = h.decliner.DeclineRemaining(ctx, "rfp-1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(results) != 1 || results[0].Status != core.ActionStatusProcessed {
		t.Fatalf("expected decline to B delivered on retry, got %+v", results)
	}
}

func TestAutoDecline_SingleRecipientProducesNoDeclines(t *testing.T) {
	h := newHarness("requester")
	ctx := context.Background()
	h.requestAll(t, "A")
	h.receive(t, "resp-a", core.ActionTypeResponse, "A")
	if _, err := h.creator.CreateAccept(ctx, "rfp-1", "A", nil); err != nil {
		t.Fatalf("create accept: %v", err)
	}
	if _, err := h.sender.SendLatest(ctx, "rfp-1", core.ActionTypeAccept, "A"); err != nil {
		t.Fatalf("send accept: %v", err)
	}
	results, err := h.decliner.DeclineRemaining(ctx, "rfp-1")
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no declines, got %+v (%v)", results, err)
	}
}

func TestAutoDecline_RequiresProcessedAccept(t *testing.T) {
	h := newHarness("requester")
	ctx := context.Background()
	h.requestAll(t, "A", "B")
	h.receive(t, "resp-a", core.ActionTypeResponse, "A")

	if _, err := h.decliner.DeclineRemaining(ctx, "rfp-1"); core.TextCode(err) != core.ErrorTransitionConflict {
		t.Fatalf("expected transition conflict without an accept, got %v", err)
	}
	if _, err := h.creator.CreateAccept(ctx, "rfp-1", "A", nil); err != nil {
		t.Fatalf("create accept: %v", err)
	}
	if _, err := h.decliner.DeclineRemaining(ctx, "rfp-1"); core.TextCode(err) != core.ErrorTransitionConflict {
		t.Fatalf("expected transition conflict while the accept is unsent, got %v", err)
	}
	declines, _ := h.store.FindActions(ctx, core.ActionQuery{RFPID: "rfp-1", Types: []core.ActionType{core.ActionTypeDecline}})
	if len(declines) != 0 {
		t.Fatalf("expected no decline records before the accept is delivered, got %+v", declines)
	}
}
