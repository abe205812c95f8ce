// Package challenge drives the challenge/response exchange on top of a
// datagram session.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrLoopDone = errors.New("challenge: loop already done")

// State is the position of the loop in its exchange cycle.
type State int

const (
	StateAwaitingChallenge State = iota
	StateSolving
	StateResponding
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateSolving:
		return "solving"
	case StateResponding:
		return "responding"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conversation is the transport the loop talks through.
type Conversation interface {
	Send(ctx context.Context, message string) error
	Receive(ctx context.Context) (message string, endOfExchange bool, err error)
}

// Exchange is one answered challenge.
type Exchange struct {
	Seq       int
	Challenge string
	Response  string
}

// Observer is notified as the loop advances. All hooks are optional.
type Observer struct {
	OnExchange func(Exchange)
	OnFinal    func(message string)
}

// Result summarizes a finished loop.
type Result struct {
	Exchanges int
	Final     string
}

// Solve reverses the order of the space separated words of challenge.
func Solve(challenge string) string {
	words := strings.Split(challenge, " ")
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return strings.Join(words, " ")
}

// Loop answers challenges until the peer ends the exchange. It is not safe
// for concurrent use.
type Loop struct {
	conv     Conversation
	observer Observer
	state    State
	count    int
}

func NewLoop(conv Conversation, observer Observer) *Loop {
	return &Loop{conv: conv, observer: observer, state: StateAwaitingChallenge}
}

func (l *Loop) State() State {
	return l.state
}

// Greet sends the opening message that announces the session to the peer.
func (l *Loop) Greet(ctx context.Context, sessionID string) error {
	return l.conv.Send(ctx, "HELLO from "+sessionID)
}

// Step runs one transition: receive, then either finish or solve and respond.
// It returns true once the loop reaches StateDone.
func (l *Loop) Step(ctx context.Context) (bool, error) {
	if l.state == StateDone {
		return true, ErrLoopDone
	}

	l.state = StateAwaitingChallenge
	msg, eom, err := l.conv.Receive(ctx)
	if err != nil {
		return false, err
	}
	if eom {
		l.state = StateDone
		if l.observer.OnFinal != nil {
			l.observer.OnFinal(msg)
		}
		return true, nil
	}

	l.state = StateSolving
	response := Solve(msg)

	l.state = StateResponding
	if err := l.conv.Send(ctx, response); err != nil {
		return false, err
	}
	l.count++
	if l.observer.OnExchange != nil {
		l.observer.OnExchange(Exchange{Seq: l.count, Challenge: msg, Response: response})
	}
	l.state = StateAwaitingChallenge
	return false, nil
}

// Run steps until StateDone and reports the final server message.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	var final string
	onFinal := l.observer.OnFinal
	l.observer.OnFinal = func(msg string) {
		final = msg
		if onFinal != nil {
			onFinal(msg)
		}
	}
	defer func() { l.observer.OnFinal = onFinal }()

	for {
		done, err := l.Step(ctx)
		if err != nil {
			return Result{Exchanges: l.count}, err
		}
		if done {
			return Result{Exchanges: l.count, Final: final}, nil
		}
	}
}
