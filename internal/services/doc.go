// Package services содержит внешних коллабораторов пайплайна:
// crawler сайта, извлечение и категоризацию контента (LLM и
// rule-based fallback), клиент голосового провайдера и клиент
// телефонного провайдера.
//
// Коллабораторы не содержат планировочной логики: они реализуют
// только контракт исполнителя этапа и уважают дедлайны контекста.
package services
