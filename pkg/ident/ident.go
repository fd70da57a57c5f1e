// Package ident 生成会话、消息所需的标识符以及"处理中"提示文案。
// 所有随机性都通过参数传入，便于测试。
package ident

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source 是最小的随机源接口，*math/rand.Rand 满足该接口。
type Source interface {
	Intn(n int) int
}

const (
	sessionPrefix       = "session_"
	sessionSuffixLength = 9
)

// processingMessages 是发送中状态可选的提示文案。
var processingMessages = []string{
	"Analisando sua solicitação...",
	"Consultando nossos especialistas em viagem...",
	"Preparando recomendações personalizadas...",
	"Buscando as melhores opções para você...",
	"Organizando as informações da sua viagem...",
	"Verificando o roteiro da sua viagem...",
}

// GenerateID 返回一个 UUID v4 字符串，用作消息和对话的 ID。
func GenerateID() string {
	return uuid.NewString()
}

// GenerateSessionID 组合毫秒时间戳与 9 位 base36 随机串。
// 只用于出站 payload 的 session 字段，不作为实体 ID 持久化。
func GenerateSessionID(now time.Time, r Source) string {
	var b strings.Builder
	b.Grow(sessionSuffixLength)
	for i := 0; i < sessionSuffixLength; i++ {
		b.WriteString(strconv.FormatInt(int64(r.Intn(36)), 36))
	}
	return fmt.Sprintf("%s%d_%s", sessionPrefix, now.UnixMilli(), b.String())
}

// RandomProcessingMessage 从固定列表中均匀随机选择一条提示文案。
func RandomProcessingMessage(r Source) string {
	return processingMessages[r.Intn(len(processingMessages))]
}

// ProcessingMessages 返回全部提示文案的副本。
func ProcessingMessages() []string {
	out := make([]string, len(processingMessages))
	copy(out, processingMessages)
	return out
}
