package crypto

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
)

const defaultRSABits = 4096

// PGPManager хранит ключ сервера и запечатывает им данные, которые
// должны пролежать в базе до подтверждения OTP.
type PGPManager struct {
	entity  *openpgp.Entity // PGP сущность
	keyPath string          // Путь к файлу ключа
	rsaBits int
}

// NewPGPManager загружает ключ из keyPath или создает новый.
// rsaBits <= 0 означает 4096.
func NewPGPManager(keyPath string, rsaBits int) (*PGPManager, error) {
	if rsaBits <= 0 {
		rsaBits = defaultRSABits
	}
	manager := &PGPManager{keyPath: keyPath, rsaBits: rsaBits}

	if err := manager.init(); err != nil {
		return nil, fmt.Errorf("не удалось инициализировать PGP: %w", err)
	}

	return manager, nil
}

func (m *PGPManager) init() error {
	if _, err := os.Stat(m.keyPath); err == nil {
		entity, err := m.loadKeyFromFile()
		if err != nil {
			return fmt.Errorf("не удалось загрузить PGP ключ: %w", err)
		}
		m.entity = entity
		return nil
	}

	return m.generateAndSaveKey()
}

func (m *PGPManager) packetConfig() *packet.Config {
	return &packet.Config{
		Rand:                   rand.Reader,
		RSABits:                m.rsaBits,
		DefaultHash:            crypto.SHA256,
		DefaultCipher:          packet.CipherAES256,
		DefaultCompressionAlgo: packet.CompressionZLIB,
	}
}

// generateAndSaveKey генерирует новый PGP ключ и сохраняет его в файл
func (m *PGPManager) generateAndSaveKey() error {
	config := m.packetConfig()

	entity, err := openpgp.NewEntity("Bankly API Server", "", "bankly-api@localhost", config)
	if err != nil {
		return fmt.Errorf("не удалось сгенерировать сущность: %w", err)
	}

	for _, id := range entity.Identities {
		if err := id.SelfSignature.SignUserId(id.UserId.Id, entity.PrimaryKey, entity.PrivateKey, config); err != nil {
			return fmt.Errorf("не удалось подписать идентичность: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(m.keyPath), 0700); err != nil {
		return fmt.Errorf("не удалось создать директорию для ключа: %w", err)
	}

	file, err := os.OpenFile(m.keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("не удалось создать файл ключа: %w", err)
	}
	defer file.Close()

	armorWriter, err := armor.Encode(file, openpgp.PrivateKeyType, nil)
	if err != nil {
		return fmt.Errorf("не удалось создать armor writer: %w", err)
	}

	if err := entity.SerializePrivate(armorWriter, config); err != nil {
		armorWriter.Close()
		return fmt.Errorf("не удалось сериализовать приватный ключ: %w", err)
	}

	if err := armorWriter.Close(); err != nil {
		return fmt.Errorf("не удалось закрыть armor writer: %w", err)
	}

	m.entity = entity
	return nil
}

func (m *PGPManager) loadKeyFromFile() (*openpgp.Entity, error) {
	file, err := os.Open(m.keyPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	block, err := armor.Decode(file)
	if err != nil {
		return nil, err
	}

	if block.Type != openpgp.PrivateKeyType {
		return nil, errors.New("файл не является приватным ключом")
	}

	return openpgp.ReadEntity(packet.NewReader(block.Body))
}

// Seal шифрует данные ключом сервера и возвращает ASCII armor
func (m *PGPManager) Seal(plaintext []byte) (string, error) {
	buf := new(bytes.Buffer)

	armorWriter, err := armor.Encode(buf, "PGP MESSAGE", nil)
	if err != nil {
		return "", fmt.Errorf("не удалось создать armor writer: %w", err)
	}

	plaintextWriter, err := openpgp.Encrypt(armorWriter, []*openpgp.Entity{m.entity}, nil, nil, m.packetConfig())
	if err != nil {
		armorWriter.Close()
		return "", fmt.Errorf("не удалось создать writer для шифрования: %w", err)
	}

	if _, err := plaintextWriter.Write(plaintext); err != nil {
		armorWriter.Close()
		return "", fmt.Errorf("ошибка при записи открытого текста: %w", err)
	}

	if err := plaintextWriter.Close(); err != nil {
		armorWriter.Close()
		return "", fmt.Errorf("ошибка при закрытии writer текста: %w", err)
	}

	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("ошибка при закрытии armor writer: %w", err)
	}

	return buf.String(), nil
}

// Open расшифровывает результат Seal
func (m *PGPManager) Open(sealed string) ([]byte, error) {
	block, err := armor.Decode(strings.NewReader(sealed))
	if err != nil {
		return nil, fmt.Errorf("не удалось декодировать armor: %w", err)
	}

	md, err := openpgp.ReadMessage(block.Body, openpgp.EntityList{m.entity}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка расшифровки: %w", err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать расшифрованные данные: %w", err)
	}
	return plaintext, nil
}
