package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callbridge.app/bridge/common/llm"
)

var _ = Describe("New", func() {
	It("requires an API key", func() {
		client, err := llm.New(llm.Config{})
		Expect(err).To(HaveOccurred())
		Expect(client).To(BeNil())
	})

	It("defaults the model", func() {
		client, err := llm.New(llm.Config{APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("gpt-4o-mini"))
	})
})

var _ = Describe("GenerateSchema", func() {
	type sample struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	It("produces a closed object schema with required fields", func() {
		data, err := json.Marshal(llm.GenerateSchema[sample]())
		Expect(err).NotTo(HaveOccurred())

		var schema map[string]any
		Expect(json.Unmarshal(data, &schema)).To(Succeed())
		Expect(schema["type"]).To(Equal("object"))
		Expect(schema["additionalProperties"]).To(BeFalse())
		Expect(schema["required"]).To(ConsistOf("name", "count"))
	})
})

var _ = DescribeTable("DescribeError",
	func(err error, expected string) {
		Expect(llm.DescribeError(err)).To(Equal(expected))
	},
	Entry("nil", nil, llm.ErrorKindNone),
	Entry("canceled", fmt.Errorf("openai chat: %w", context.Canceled), llm.ErrorKindCanceled),
	Entry("deadline", context.DeadlineExceeded, llm.ErrorKindCanceled),
	Entry("decode", fmt.Errorf("unmarshal response: %w", &json.SyntaxError{}), llm.ErrorKindDecode),
	Entry("empty choices", errors.New("no choices in response"), llm.ErrorKindDecode),
	Entry("anything else", errors.New("dial tcp: connection refused"), llm.ErrorKindNetwork),
)
