package llm

// Prompt builds the instruction sent with text.
func Prompt(text string) string {
	return promptHead + text + promptTail
}

const promptHead = `Analyze the text below. Your goal is to be comprehensive yet discerning. Identify **all** phrases, terms (including technical jargon, acronyms, less common idioms or phrasal verbs, specific named entities like organizations or events if not widely known, and potentially ambiguous vocabulary) that **might be difficult or unfamiliar** to a **broad general audience**. This audience includes people with varying backgrounds and levels of familiarity with English, but assume a reasonable level of general knowledge.

**Err on the side of inclusion, but focus on terms likely to impede understanding for non-specialists**: if a term *could* reasonably be unknown or less familiar to *some* members of a general audience (beyond the most common vocabulary and expressions), please include it.

For each identified phrase, provide:
1.  The original phrase exactly as written in the text ("phrase").
2.  A concise explanation suitable for a brief tooltip ("short_explanation"), written in clear, accessible English.
3.  A more detailed explanation exploring the concept ("long_explanation"), aiming for clarity and providing context or a simple example if helpful, written in clear, accessible English.
4.  A concise Vietnamese translation of the original phrase ("vietnamese_translation").

Respond ONLY with a single, valid JSON array containing objects. Each object must have exactly FOUR string keys: "phrase", "short_explanation", "long_explanation", and "vietnamese_translation".
Do not include any text before or after the JSON array. Do not use markdown formatting like backticks around the JSON block itself.
If no potentially unfamiliar phrases are found, return an empty JSON array: [].

Example Format:
[{ "phrase": "fiscal quarter", "short_explanation": "A three-month period on a company's financial calendar.", "long_explanation": "A fiscal quarter is one of four three-month periods that make up a company's financial year. It's used for reporting financial results and performance.", "vietnamese_translation": "quý tài chính" }, { "phrase": "level playing field", "short_explanation": "A situation of fair competition.", "long_explanation": "The term 'level playing field' refers to fairness in competition, where no single competitor has an undue advantage or disadvantage.", "vietnamese_translation": "sân chơi bình đẳng" }]

Text to analyze:
---
`

const promptTail = `
---
JSON Array:`
