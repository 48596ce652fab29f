package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/utils"
)

// accessCodeBytes gives 8-character codes, long enough for a secret that
// can be rotated at will from chat.
const accessCodeBytes = 4

// cmdCodigo hands a teacher a fresh dashboard access code. Only the bcrypt
// hash is stored; the clear code exists once, in this chat message.
func (b *Bot) cmdCodigo(ctx context.Context, req Request) error {
	user, err := b.store.UserByMatrixID(req.Sender)
	if err != nil {
		if errors.Is(err, status.ErrUserNotRegistered) {
			b.send(req.RoomID, "❌ No estás registrado en el sistema.")
			return nil
		}
		return fmt.Errorf("load user %s: %w", req.Sender, err)
	}
	if !user.IsTeacher {
		b.send(req.RoomID, "❌ Solo los profesores pueden solicitar un código de acceso al panel.")
		return nil
	}

	// Refuse in managed rooms: the code would be visible to the class.
	if _, err := b.store.RoomByRoomID(req.RoomID); err == nil {
		b.send(req.RoomID, "🔒 Pídeme el código en un chat privado, no en una sala del curso.")
		return nil
	} else if !errors.Is(err, status.ErrRoomNotFound) {
		return fmt.Errorf("check room %s: %w", req.RoomID, err)
	}

	code, err := utils.GenerateCode(accessCodeBytes)
	if err != nil {
		return fmt.Errorf("generate access code: %w", err)
	}
	hash, err := utils.HashAccessCode(code)
	if err != nil {
		return fmt.Errorf("hash access code: %w", err)
	}
	if err := b.store.SetAccessCodeHash(user.ID, hash); err != nil {
		return fmt.Errorf("store access code: %w", err)
	}

	b.send(req.RoomID, fmt.Sprintf(
		"🔑 Tu nuevo código de acceso al panel es: %s\nGuárdalo, no volverá a mostrarse. Cada código nuevo invalida el anterior.",
		code,
	))
	return nil
}
