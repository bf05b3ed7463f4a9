package frame

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Sealer 为帧负载提供机密性与完整性保护。aad 不会被加密，但被篡改时 Open 失败。
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(packet, aad []byte) ([]byte, error)
}

const aes256KeySize = 32

// AEADSealer 使用 AES-256-GCM 加密，并对结果再做一次 HMAC-SHA256 签名。
//
// 报文格式：nonce || ciphertext || mac，其中 mac = HMAC-SHA256(nonce || ciphertext || aad)。
type AEADSealer struct {
	aead    cipher.AEAD
	hmacKey []byte
	rand    io.Reader
}

var _ Sealer = (*AEADSealer)(nil)

// NewAEADSealer 创建 AEADSealer。encKey 必须为 32 字节，macKey 不能为空。
func NewAEADSealer(encKey, macKey []byte) (*AEADSealer, error) {
	if len(encKey) != aes256KeySize {
		return nil, merr.WrapErrParameterInvalid(aes256KeySize, len(encKey), "encryption key size")
	}
	if len(macKey) == 0 {
		return nil, merr.WrapErrParameterInvalidMsg("mac key must not be empty")
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("aes cipher: %s", err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("gcm: %s", err.Error())
	}
	return &AEADSealer{
		aead:    aead,
		hmacKey: append([]byte(nil), macKey...),
		rand:    rand.Reader,
	}, nil
}

func (s *AEADSealer) mac(nonce, ciphertext, aad []byte) []byte {
	m := hmac.New(sha256.New, s.hmacKey)
	_, _ = m.Write(nonce)
	_, _ = m.Write(ciphertext)
	_, _ = m.Write(aad)
	return m.Sum(nil)
}

func (s *AEADSealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	packet := make([]byte, nonceSize, nonceSize+len(plaintext)+s.aead.Overhead()+sha256.Size)
	if _, err := io.ReadFull(s.rand, packet); err != nil {
		return nil, merr.WrapErrIoFailed(err)
	}
	packet = s.aead.Seal(packet, packet[:nonceSize], plaintext, aad)
	return append(packet, s.mac(packet[:nonceSize], packet[nonceSize:], aad)...), nil
}

func (s *AEADSealer) Open(packet, aad []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(packet) < nonceSize+s.aead.Overhead()+sha256.Size {
		return nil, merr.WrapErrMalformedInput("", -1, "sealed frame too short")
	}
	macOffset := len(packet) - sha256.Size
	nonce, ciphertext := packet[:nonceSize], packet[nonceSize:macOffset]
	if !hmac.Equal(s.mac(nonce, ciphertext, aad), packet[macOffset:]) {
		return nil, merr.WrapErrMalformedInput("", -1, "frame authentication failed")
	}
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, merr.WrapErrMalformedInput("", -1, "frame decryption failed")
	}
	return plaintext, nil
}
