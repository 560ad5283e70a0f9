package contract

// ContentBlock: 原子输入单元。身份由其在序列中的位置（1 起始）隐式确定，读取后不可变。
type ContentBlock struct {
	Content string `json:"content"`
}

// QAPair: 由 Synthesizer 基于单个 ContentBlock 生成的问答对。
// 约束：创建后不再修改；Index 指向来源块位置，Timestamp 为本地时间 "2006-01-02 15:04:05"。
type QAPair struct {
	TextInput string `json:"text_input"`
	Output    string `json:"output"`
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
}

// BatchResult: 一次完整运行的汇总结果。
// 不变量：SuccessfulItems + FailedItems + SkippedItems == TotalItems。
type BatchResult struct {
	TotalItems      int      `json:"total_items"`
	SuccessfulItems int      `json:"successful_items"`
	FailedItems     int      `json:"failed_items"`
	SkippedItems    int      `json:"skipped_items"`
	TotalQAPairs    int      `json:"total_qa_pairs"`
	QAPairs         []QAPair `json:"qa_pairs"`
}

// Consistent 校验计数不变量。
func (r BatchResult) Consistent() bool {
	return r.SuccessfulItems+r.FailedItems+r.SkippedItems == r.TotalItems &&
		r.TotalQAPairs == len(r.QAPairs)
}

// BlockArtifact: 单块输出文件 qa_pairs_<index>.json 的内容。
// OriginalText 为清洗后文本的前 200 字符加 "..."，便于人工核对。
type BlockArtifact struct {
	Index        int      `json:"index"`
	Timestamp    string   `json:"timestamp"`
	OriginalText string   `json:"original_text"`
	QAPairs      []QAPair `json:"qa_pairs"`
}

// DatasetRow: 训练集表格中的一行，由 QAPair 确定性派生。
type DatasetRow struct {
	Input           string `json:"input"`
	Output          string `json:"output"`
	InputWordCount  int    `json:"input_word_count"`
	OutputWordCount int    `json:"output_word_count"`
}

// RunReport: 供终端与调用方使用的运行报告，附带失败/跳过块的位置（1 起始，升序）。
type RunReport struct {
	Result  BatchResult
	Failed  []int
	Skipped []int
}
